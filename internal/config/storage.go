package config

// Storage persists JSON documents addressed by moniker. A moniker is a
// slash-separated logical path, e.g. "settings/system-settings" or
// "plugins/debug/state". Implementations must be safe for concurrent
// use.
//
// Load returns an error wrapping errs.ErrNotFound when no document
// exists at the moniker.
type Storage interface {
	Load(moniker string) (map[string]any, error)
	Save(moniker string, content map[string]any) error
	Delete(moniker string) error

	// List returns the monikers under prefix, in lexical order.
	List(prefix string) ([]string, error)

	// Clear removes every document. Used by HardReset before the
	// template tree is recopied.
	Clear() error
}
