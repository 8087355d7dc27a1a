package host

// Capabilities holds the host modules found at start. A nil field means the
// host does not offer that capability.
type Capabilities struct {
	Messages   MessageSender
	Dispatcher EventDispatcher
	Network    NetworkLayer
	Storage    KVStore
}

// Resolve picks, for each capability, the first module that provides it.
func Resolve(modules ...any) Capabilities {
	var c Capabilities
	c.Messages, _ = find[MessageSender](modules)
	c.Dispatcher, _ = find[EventDispatcher](modules)
	c.Network, _ = find[NetworkLayer](modules)
	c.Storage, _ = find[KVStore](modules)
	return c
}

// Presence reports which capabilities were resolved, keyed by name.
func (c Capabilities) Presence() map[string]bool {
	return map[string]bool{
		"MessageSender":   c.Messages != nil,
		"EventDispatcher": c.Dispatcher != nil,
		"NetworkLayer":    c.Network != nil,
		"KVStore":         c.Storage != nil,
	}
}

func find[T any](modules []any) (T, bool) {
	for _, m := range modules {
		if m == nil {
			continue
		}
		if v, ok := m.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
