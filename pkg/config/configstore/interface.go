package configstore

import "errors"

// ErrWatchNotSupported is returned by stores that cannot report changes.
var ErrWatchNotSupported = errors.New("watch not supported")

type ConfigStore interface {
	Load(out any) error
	Save(data any) error
}
