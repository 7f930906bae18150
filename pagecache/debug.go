//go:build pagecache_debug

package pagecache

const debugging = true

func assert(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
