package junosmx

import (
	"fmt"
	"sync/atomic"

	"xconnect/internal/session"
	"xconnect/internal/vendors"
)

const clientHello = `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
	`<capabilities><capability>urn:ietf:params:netconf:base:1.0</capability></capabilities></hello>`

// rpcs numbers the requests of one NETCONF session.
type rpcs struct{ last atomic.Int64 }

func (r *rpcs) wrap(body string) string {
	return fmt.Sprintf(`<rpc message-id="%d">%s</rpc>`, r.last.Add(1), body)
}

// Dialect speaks NETCONF 1.0 framing.  Changes go into a private
// candidate, are loaded as merges, and are committed only after a
// commit check passes.
func (p *Profile) Dialect(params vendor.SessionParams) (session.Dialect, error) {
	ids := &rpcs{}
	reply := session.RPCReply{}
	return session.Dialect{
		Framer:     session.DelimiterFramer{Delimiter: session.NetconfDelimiter},
		LineEnding: session.NetconfDelimiter,
		Greeting:   session.Prompt{Marker: "<hello"},
		Login: []session.Exchange{
			{Text: clientHello},
			{Text: ids.wrap(`<open-configuration><private/></open-configuration>`), Match: reply},
		},
		Reply: reply,
		Wrap: func(fragment string) string {
			return ids.wrap(`<load-configuration action="merge" format="xml"><configuration>` +
				fragment + `</configuration></load-configuration>`)
		},
		PreCheck: func(filter string) string {
			return ids.wrap(`<get-config><source><running/></source><filter type="subtree">` +
				filter + `</filter></get-config>`)
		},
		Commit: []session.Exchange{
			{Text: ids.wrap(`<commit-configuration><check/></commit-configuration>`), Match: reply},
			{Text: ids.wrap(`<commit-configuration><log>xconnect ` + escape(params.ConnectionID) +
				`</log></commit-configuration>`), Match: reply},
		},
		Logout: []string{
			ids.wrap(`<close-configuration/>`),
			ids.wrap(`<close-session/>`),
		},
	}, nil
}
