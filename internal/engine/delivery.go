package engine

import (
	"slices"

	"github.com/DoyleJ11/cyberlab-sim/pkg/protocol"
)

// Audience selects which participants receive a delivery. A participant is
// included if it is named, holds one of the roles, or All is set; Except
// always wins.
type Audience struct {
	Names  []string
	Roles  []protocol.Role
	All    bool
	Except string
}

func To(name string) Audience { return Audience{Names: []string{name}} }

func ToRoles(roles ...protocol.Role) Audience { return Audience{Roles: roles} }

func Everyone() Audience { return Audience{All: true} }

func EveryoneBut(name string) Audience { return Audience{All: true, Except: name} }

func (a Audience) Includes(name string, role protocol.Role) bool {
	if name == a.Except && a.Except != "" {
		return false
	}
	return a.All || slices.Contains(a.Names, name) || slices.Contains(a.Roles, role)
}

type Delivery struct {
	To  Audience
	Msg protocol.Inbound
	// Close asks the transport to drop the recipients after sending Msg.
	Close bool
}

var watchers = []protocol.Role{protocol.RoleDefender, protocol.RoleObserver}

func send(to Audience, msg protocol.Inbound) Delivery { return Delivery{To: to, Msg: msg} }
