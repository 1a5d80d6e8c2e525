// edgewall/pkg/store/store.go

package store

// Source supplies the packed rule payload and signals when it changes.
// Fetch returns the raw payload exactly as stored ("raw:<base64>" or
// bare base64(gzip(json))); decoding belongs to the compiler.
type Source interface {
	Fetch() ([]byte, error)
	// Updates delivers a signal per rule-set change. The channel closes
	// when the source shuts down.
	Updates() <-chan struct{}
	Close() error
}
