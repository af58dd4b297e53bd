package redis

import (
	"github.com/gomodule/redigo/redis"

	"github.com/bidhaus/goapi/domain/keys"
)

// ScriptHdl wraps a lua script so it can be EVALSHA'd through ScriptDo.
type ScriptHdl struct {
	script *redis.Script
}

// NewScript prepares a lua script with the given key count.
func NewScript(keyCount int, src string) *ScriptHdl {
	return &ScriptHdl{script: redis.NewScript(keyCount, src)}
}

// Do runs the script on conn, loading it on NOSCRIPT.
func (s *ScriptHdl) Do(conn redis.Conn, keysAndArgs ...interface{}) (interface{}, error) {
	return s.script.Do(conn, keysAndArgs...)
}

func (s *ScriptHdl) prefix(keysAndArgs ...interface{}) string {
	if len(keysAndArgs) == 0 {
		return ""
	}
	if key, ok := keysAndArgs[0].(string); ok {
		return keys.GetPrefix(key)
	}
	return ""
}
