package sentiment

import "fmt"

// AccountTier is the subscription level of an account.
type AccountTier float64

const (
	Sandbox    AccountTier = 0
	Starter    AccountTier = 1
	Premium    AccountTier = 1.5
	Enterprise AccountTier = 2
)

func (t AccountTier) String() string {
	switch t {
	case Sandbox:
		return "sandbox"
	case Starter:
		return "starter"
	case Premium:
		return "premium"
	case Enterprise:
		return "enterprise"
	default:
		return fmt.Sprintf("tier(%g)", float64(t))
	}
}

// ParseAccountTier maps a tier name to its AccountTier.
func ParseAccountTier(name string) (AccountTier, error) {
	for _, t := range []AccountTier{Sandbox, Starter, Premium, Enterprise} {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown account tier %q", name)
}
