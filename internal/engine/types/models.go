package types

// Destination is the resolved write target for one transfer attempt: an
// absolute file path plus the byte offset to resume from. It is computed
// fresh on every (re)start and never cached, because Append mode depends
// on the on-disk length at resolution time.
type Destination struct {
	Path   string
	Offset int64
}
