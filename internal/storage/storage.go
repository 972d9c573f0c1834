package storage

// Scratch hands out uniquely named, short-lived files for engines that
// only accept a filesystem path.
type Scratch interface {
	Acquire(data []byte, filename string) (*TempFile, error)
	With(data []byte, filename string, fn func(path string) error) error
}
