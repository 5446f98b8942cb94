package video

import (
	"fmt"
	"io/fs"
)

// StalenessPolicy decides whether a record no longer reflects its file.
type StalenessPolicy interface {
	IsStale(rec *Record, info fs.FileInfo) bool
}

// SizePolicy treats a record as fresh while its stored size matches the file.
// Content changes that keep the size identical go unnoticed.
type SizePolicy struct{}

func (SizePolicy) IsStale(rec *Record, info fs.FileInfo) bool {
	if rec.SchemaVersion != SchemaVersion {
		return true
	}
	return rec.SizeBytes != info.Size()
}

// SizeModTimePolicy additionally re-probes when the modification time moved.
type SizeModTimePolicy struct{}

func (SizeModTimePolicy) IsStale(rec *Record, info fs.FileInfo) bool {
	if (SizePolicy{}).IsStale(rec, info) {
		return true
	}
	return !rec.ModTime.Equal(info.ModTime().UTC())
}

// Staleness policy names accepted by ParseStalenessPolicy.
const (
	StalenessSize        = "size"
	StalenessSizeModTime = "size+mtime"
)

// ParseStalenessPolicy returns the policy registered under name.
func ParseStalenessPolicy(name string) (StalenessPolicy, error) {
	switch name {
	case "", StalenessSize:
		return SizePolicy{}, nil
	case StalenessSizeModTime:
		return SizeModTimePolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown staleness policy %q (want %q or %q)", name, StalenessSize, StalenessSizeModTime)
	}
}
