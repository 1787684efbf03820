package entitystore

import (
	"time"

	"github.com/roach88/resinker/internal/value"
)

// Instance is one entity instance: a primary-keyed payload plus
// engine-managed state attributes. PrimaryKeyValue is unique within Kind.
type Instance struct {
	Kind            string
	PrimaryKeyValue value.Value
	Payload         *value.Object
	State           *value.Object
	CreatedAt       time.Time
	LastUpdatedAt   time.Time
}

// Ref is a borrow-only handle to an Instance. Scenario runs and bindings
// hold Refs; only the scheduler mutates an Instance outside the store.
type Ref = *Instance

// primaryKeyString renders a primary key value to a stable map key.
// Selection filters compare typed Values, but the store's lookup index
// needs a comparable Go key; JSON-ish string rendering is sufficient
// because primary keys are always scalar (string/int).
func primaryKeyString(v value.Value) string {
	switch val := v.(type) {
	case value.String:
		return "s:" + string(val)
	case value.Int:
		return "i:" + itoa(int64(val))
	default:
		b, err := value.MarshalJSON(v)
		if err != nil {
			return "?"
		}
		return string(b)
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
