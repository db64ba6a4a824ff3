// Package keyspace names every key the storefront writes.
//
//	login:            hash   token -> user
//	recent:           zset   token -> last seen (unix seconds)
//	viewed:<token>    zset   item  -> viewed at (unix seconds)
//	cart:<token>      hash   item  -> quantity
//	popular:          zset   item  -> decaying view score
//	cache:<fp>        string rendered page, expires
//	delay:            zset   row   -> refresh interval (seconds)
//	schedule:         zset   row   -> next refresh (unix seconds)
//	inv:<row>         string materialized row JSON
package keyspace

// Keys builds key names under an optional namespace prefix.
type Keys struct {
	Prefix string
}

// Default has no prefix.
var Default = Keys{}

// New returns key builders namespaced by prefix (e.g. "shop:").
func New(prefix string) Keys {
	return Keys{Prefix: prefix}
}

func (k Keys) Login() string                  { return k.Prefix + "login:" }
func (k Keys) Recent() string                 { return k.Prefix + "recent:" }
func (k Keys) Viewed(token string) string     { return k.Prefix + "viewed:" + token }
func (k Keys) Cart(token string) string       { return k.Prefix + "cart:" + token }
func (k Keys) Popular() string                { return k.Prefix + "popular:" }
func (k Keys) Page(fingerprint string) string { return k.Prefix + "cache:" + fingerprint }
func (k Keys) Delay() string                  { return k.Prefix + "delay:" }
func (k Keys) Schedule() string               { return k.Prefix + "schedule:" }
func (k Keys) Row(id string) string           { return k.Prefix + "inv:" + id }
