package model

// PresenceStatus is the wire-contract presence enum pushed by the companion
// app and polled from the provider.
type PresenceStatus string

const (
	PresenceActive     PresenceStatus = "active"
	PresenceAway       PresenceStatus = "away"
	PresenceDND        PresenceStatus = "dnd"
	PresenceMeeting    PresenceStatus = "meeting"
	PresenceOffline    PresenceStatus = "offline"
	PresenceCall       PresenceStatus = "call"
	PresencePresenting PresenceStatus = "presenting"
)

var PresenceStatuses = []string{
	string(PresenceActive),
	string(PresenceAway),
	string(PresenceDND),
	string(PresenceMeeting),
	string(PresenceOffline),
	string(PresenceCall),
	string(PresencePresenting),
}

func (s PresenceStatus) Valid() bool {
	for _, v := range PresenceStatuses {
		if string(s) == v {
			return true
		}
	}
	return false
}

// CommandStatus tracks the delivery lifecycle of a queued device command.
type CommandStatus string

const (
	CommandPending CommandStatus = "pending"
	CommandAcked   CommandStatus = "acked"
	CommandExpired CommandStatus = "expired"
)

// CommandWhitelist is the exact set of commands a companion app may enqueue.
// The device firmware's command processor is the other side of this contract.
var CommandWhitelist = []string{
	"set_brightness",
	"set_config",
	"get_config",
	"get_status",
	"get_telemetry",
	"get_troubleshooting_status",
	"reboot",
	"factory_reset",
	"ota_update",
	"set_display_name",
	"set_time_zone",
	"clear_wifi",
	"test_display",
	"ping",
}

func IsWhitelistedCommand(command string) bool {
	for _, c := range CommandWhitelist {
		if command == c {
			return true
		}
	}
	return false
}

// OwnerScope distinguishes device-bound from user-bound OAuth tokens.
type OwnerScope string

const (
	ScopeDevice OwnerScope = "device"
	ScopeUser   OwnerScope = "user"
)

const ProviderWebex = "webex"
