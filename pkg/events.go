package lnurl

// Gateway event types

// bus.Send(INV_FORWARDED, forwarded)
// bus.Send(USR_CREATED, user)

// Interface for any event
type EventType interface {
	Type() string
}

// slice of all msg types for config funcs lookup
var EVENT_TYPES []EventType = []EventType{EVENT_ALL("ALL"),
	EVENT_SYS("SYS"),
	EVENT_USR("USR"),
	EVENT_INV("INV")}

// LookupEventTypes maps configured type names onto EventTypes, returning
// the names that matched nothing.
func LookupEventTypes(names []string) (types []EventType, invalid []string) {
	for _, t := range names {
		match := false
		for _, x := range EVENT_TYPES {
			if t == x.Type() {
				match = true
				types = append(types, x)
			}
		}
		if !match {
			invalid = append(invalid, t)
		}
	}
	return
}

// Special category, do not use directly, represents *
type EVENT_ALL string

func (e EVENT_ALL) Type() string {
	return "ALL"
}

// System Events
type EVENT_SYS string

func (e EVENT_SYS) Type() string {
	return "SYS"
}

const (
	SYS_STARTUP EVENT_SYS = "STARTUP"
	SYS_ERR     EVENT_SYS = "ERR"
	SYS_MSG     EVENT_SYS = "MSG"
)

// User Events
type EVENT_USR string

func (e EVENT_USR) Type() string {
	return "USR"
}

const (
	USR_CREATED EVENT_USR = "CREATED"
)

// Invoice Events
type EVENT_INV string

func (e EVENT_INV) Type() string {
	return "INV"
}

const (
	INV_CREATED        EVENT_INV = "CREATED"
	INV_SETTLED        EVENT_INV = "SETTLED"
	INV_FORWARDED      EVENT_INV = "FORWARDED"
	INV_FORWARD_FAILED EVENT_INV = "FORWARD_FAILED"
)
