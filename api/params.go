package api

import (
	"net/url"
	"strings"
)

// Param is a single key-value pair of a query string or form body.
type Param struct {
	Key, Value string
}

// Params keeps parameters in the order they were added, which is the order
// they go on the wire.
type Params []Param

func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Encode percent-encodes keys and values and joins them with '=' and '&'.
func (p Params) Encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.Value))
	}
	return sb.String()
}

// Values converts p to url.Values. Order is lost.
func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for _, kv := range p {
		v.Add(kv.Key, kv.Value)
	}
	return v
}

func pairs(kv ...string) Params {
	p := make(Params, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		p = p.Add(kv[i], kv[i+1])
	}
	return p
}
