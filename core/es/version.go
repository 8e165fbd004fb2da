package es

import "log/slog"

// Version is the per-aggregate sequence number of an event within its stream.
// It is strictly increasing, gap-free and starts at 1 for the first event.
// When saving, the expected version must match the stream's current version;
// a mismatch is the optimistic lock signal.
type Version uint64

func (v Version) Uint64() uint64                         { return uint64(v) }
func (v Version) Next() Version                          { return v + 1 }
func (v Version) SlogAttr() slog.Attr                    { return newSlogVersionAttr("version", v) }
func (v Version) SlogAttrWithKey(key string) slog.Attr   { return newSlogVersionAttr(key, v) }
func newSlogVersionAttr(key string, v Version) slog.Attr { return slog.Uint64(key, uint64(v)) }
