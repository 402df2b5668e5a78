package envutil

import "github.com/drone/envsubst"

// Expand substitutes ${VAR}-style references in s with values from
// the environment. Unknown variables expand to the empty string.
func Expand(s string) string {
	val, _ := envsubst.EvalEnv(s)
	return val
}
