package vault

// Secret is one vault item as the CLI reports it: an object with at least a
// "name" field, plus whatever structure the vault stores (login credentials,
// custom field lists, nested notes). The resolution engine navigates it
// generically, so the shape stays untyped.
type Secret map[string]any

// Name returns the secret's name, the key it is referenced by.
func (s Secret) Name() string {
	name, _ := s["name"].(string)
	return name
}
