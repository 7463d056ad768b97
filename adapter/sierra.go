package adapter

import "fmt"

func sw8790Variant() Variant {
	return Variant{
		Tag:    SW8790,
		Parent: Base,
		Overrides: map[Kind]Operation{
			KindDefineContext: {Build: contextCmd(defineQoS), Route: RouteData, Timeout: defineTimeout},
			KindDeactivate:    {Build: contextCmd(undefine), Route: RouteData, Timeout: deactivateTimeout},
		},
	}
}

// undefine removes the context definition, which also deactivates it.
func undefine(p ContextParams) string {
	return fmt.Sprintf("AT+CGDCONT=%d", p.CID)
}
