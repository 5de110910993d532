package acsp

// PacketKind is the first byte of every datagram exchanged with the server.
type PacketKind uint8

// server -> plugin
const (
	PacketNewSession       PacketKind = 50
	PacketNewConnection    PacketKind = 51
	PacketConnectionClosed PacketKind = 52
	PacketCarUpdate        PacketKind = 53
	PacketCarInfo          PacketKind = 54 // Sent as response to PacketGetCarInfo
	PacketEndSession       PacketKind = 55
	PacketVersion          PacketKind = 56
	PacketChat             PacketKind = 57
	PacketClientLoaded     PacketKind = 58
	PacketSessionInfo      PacketKind = 59 // Sent as response to PacketGetSessionInfo
	PacketError            PacketKind = 60
	PacketLapCompleted     PacketKind = 73
	PacketClientEvent      PacketKind = 130
)

// plugin -> server
const (
	PacketRealtimePosInterval PacketKind = 200
	PacketGetCarInfo          PacketKind = 201
	PacketSendChat            PacketKind = 202 // Sends chat to one car
	PacketBroadcastChat       PacketKind = 203 // Sends chat to everybody
	PacketGetSessionInfo      PacketKind = 204
	PacketSetSessionInfo      PacketKind = 205
	PacketKickUser            PacketKind = 206
)

// ClientEventType is the subtype byte of a PacketClientEvent.
type ClientEventType uint8

const (
	CollisionWithCar ClientEventType = 10
	CollisionWithEnv ClientEventType = 11
)

const (
	// CommandPacketLen is the size of fixed-format command packets, unused
	// bytes are zero.
	CommandPacketLen = 100

	// MaxStringLen is the maximum number of characters a wire string can
	// carry, longer strings are truncated.
	MaxStringLen = 255

	// CurrentSession can be passed to GetSessionInfo to fetch whichever
	// session is currently running.
	CurrentSession = -1

	DefaultHost      = "localhost"
	DefaultPort      = 12000 // server UDP_PLUGIN_LOCAL_PORT
	DefaultLocalPort = 12001 // server UDP_PLUGIN_ADDRESS port
	DefaultNetwork   = "udp4"

	// eventsChanCap is the buffer of channels returned by Client.Events.On
	eventsChanCap = 64
)

func (k PacketKind) String() string {
	switch k {
	case PacketNewSession:
		return "NewSession"
	case PacketNewConnection:
		return "NewConnection"
	case PacketConnectionClosed:
		return "ConnectionClosed"
	case PacketCarUpdate:
		return "CarUpdate"
	case PacketCarInfo:
		return "CarInfo"
	case PacketEndSession:
		return "EndSession"
	case PacketVersion:
		return "Version"
	case PacketChat:
		return "Chat"
	case PacketClientLoaded:
		return "ClientLoaded"
	case PacketSessionInfo:
		return "SessionInfo"
	case PacketError:
		return "Error"
	case PacketLapCompleted:
		return "LapCompleted"
	case PacketClientEvent:
		return "ClientEvent"
	case PacketRealtimePosInterval:
		return "RealtimePosInterval"
	case PacketGetCarInfo:
		return "GetCarInfo"
	case PacketSendChat:
		return "SendChat"
	case PacketBroadcastChat:
		return "BroadcastChat"
	case PacketGetSessionInfo:
		return "GetSessionInfo"
	case PacketSetSessionInfo:
		return "SetSessionInfo"
	case PacketKickUser:
		return "KickUser"
	default:
		return "Unknown"
	}
}
