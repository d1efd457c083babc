package session

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var sessionTokenPattern = regexp.MustCompile(`^session_(\d+)_([0-9a-z]{9})$`)

// Every minted token must carry a parseable millisecond timestamp and a
// nine character base36 suffix, and tokens must never collide in practice.
func TestProperty_SessionTokenGeneration(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tokens match the wire format", prop.ForAll(
		func(_ int) bool {
			id, err := GenerateSessionID()
			if err != nil {
				return false
			}
			return sessionTokenPattern.MatchString(id)
		},
		gen.Int(),
	))

	properties.Property("token timestamp is current wall clock in milliseconds", prop.ForAll(
		func(_ int) bool {
			before := time.Now().UnixMilli()
			id, err := GenerateSessionID()
			if err != nil {
				return false
			}
			after := time.Now().UnixMilli()

			m := sessionTokenPattern.FindStringSubmatch(id)
			if m == nil {
				return false
			}
			ms, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return false
			}
			return ms >= before && ms <= after
		},
		gen.Int(),
	))

	properties.Property("suffix only uses base36 characters", prop.ForAll(
		func(_ int) bool {
			id, err := GenerateSessionID()
			if err != nil {
				return false
			}
			m := sessionTokenPattern.FindStringSubmatch(id)
			if m == nil {
				return false
			}
			for _, c := range m[2] {
				if !strings.ContainsRune(base36Alphabet, c) {
					return false
				}
			}
			return true
		},
		gen.Int(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestGenerateSessionID_NoCollisions(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 10000; i++ {
		id, err := GenerateSessionID()
		if err != nil {
			t.Fatalf("GenerateSessionID failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate token generated: %s", id)
		}
		seen[id] = true
	}
}
