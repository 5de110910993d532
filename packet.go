package acsp

import "fmt"

// EventType identifies one of the channels events are dispatched on. Its
// string form is the topic used on Client.Events.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventNewSession
	EventSessionInfo
	EventEndSession
	EventNewConnection
	EventConnectionClosed
	EventCarUpdate
	EventCarInfo
	EventVersion
	EventChat
	EventClientLoaded
	EventError
	EventLapCompleted
	EventClientEvent
	EventCollideCar
	EventCollideEnv
	EventCarConnected
	EventSocketError

	eventTypeCount
)

var eventNames = [eventTypeCount]string{
	EventUnknown:          "unknown",
	EventNewSession:       "new_session",
	EventSessionInfo:      "session_info",
	EventEndSession:       "end_session",
	EventNewConnection:    "new_connection",
	EventConnectionClosed: "connection_closed",
	EventCarUpdate:        "car_update",
	EventCarInfo:          "car_info",
	EventVersion:          "version",
	EventChat:             "chat",
	EventClientLoaded:     "client_loaded",
	EventError:            "error",
	EventLapCompleted:     "lap_completed",
	EventClientEvent:      "client_event",
	EventCollideCar:       "collide_car",
	EventCollideEnv:       "collide_env",
	EventCarConnected:     "car_connected",
	EventSocketError:      "socket_error",
}

func (t EventType) String() string {
	if t < eventTypeCount {
		return eventNames[t]
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// EventTypes returns all event types, in declaration order.
func EventTypes() []EventType {
	res := make([]EventType, 0, eventTypeCount)
	for t := EventType(0); t < eventTypeCount; t++ {
		res = append(res, t)
	}
	return res
}

// Event is implemented by every decoded packet. The set of implementations
// is closed: the unexported method prevents other packages from adding
// their own.
type Event interface {
	// Kind returns the packet kind the event was decoded from.
	Kind() PacketKind
	event()
}

// Vector3 is three consecutive little-endian float32 values on the wire.
type Vector3 struct {
	X, Y, Z float32
}

// SessionInfo is sent by the server when a session starts (PacketNewSession)
// or as a response to GetSessionInfo (PacketSessionInfo).
type SessionInfo struct {
	Fresh               bool  // true if decoded from PacketNewSession
	Version             uint8 // protocol version
	SessionIndex        uint8
	CurrentSessionIndex uint8
	SessionCount        uint8
	ServerName          string
	Track               string
	TrackConfig         string
	Name                string
	Type                uint8
	Time                uint16 // minutes
	Laps                uint16
	WaitTime            uint16 // seconds
	AmbientTemp         uint8
	RoadTemp            uint8
	WeatherGraphics     string
	ElapsedMs           int32
}

// EndSession carries the name of the results file the server wrote.
type EndSession struct {
	Filename string
}

// Connection is sent when a driver connects (PacketNewConnection) or
// disconnects (PacketConnectionClosed).
type Connection struct {
	Closed     bool
	DriverName string
	DriverGUID string
	CarID      uint8
	CarModel   string
	CarSkin    string
}

// CarUpdate is the per-tick realtime position report of a car.
type CarUpdate struct {
	CarID               uint8
	Pos                 Vector3
	Velocity            Vector3
	Gear                uint8
	EngineRPM           uint16
	NormalizedSplinePos float32
}

// CarInfo is the response to GetCarInfo.
type CarInfo struct {
	CarID       uint8
	IsConnected bool
	CarModel    string
	CarSkin     string
	DriverName  string
	DriverTeam  string
	DriverGUID  string
}

type Version struct {
	Version uint8
}

type Chat struct {
	CarID   uint8
	Message string
}

type ClientLoaded struct {
	CarID uint8
}

// ServerError is a protocol error reported by the server. The protocol
// doesn't say which command caused it.
type ServerError struct {
	Message string
}

// LeaderboardEntry is one line of the leaderboard included in LapCompleted.
type LeaderboardEntry struct {
	CarID     uint8
	Time      uint32 // best lap, ms
	Laps      uint16
	Completed bool
}

type LapCompleted struct {
	CarID       uint8
	LapTime     uint32 // ms
	Cuts        uint8
	Leaderboard []LeaderboardEntry
	GripLevel   float32
}

// ClientEvent reports a collision. OtherCarID is only set when Type is
// CollisionWithCar.
type ClientEvent struct {
	Type        ClientEventType
	CarID       uint8
	OtherCarID  *uint8
	ImpactSpeed float32
	WorldPos    Vector3
	RelPos      Vector3
}

// UnknownPacket is produced for datagrams with an unrecognized kind byte.
type UnknownPacket struct {
	Type PacketKind
	Data []byte
}

func (s *SessionInfo) Kind() PacketKind {
	if s.Fresh {
		return PacketNewSession
	}
	return PacketSessionInfo
}

func (c *Connection) Kind() PacketKind {
	if c.Closed {
		return PacketConnectionClosed
	}
	return PacketNewConnection
}

func (*EndSession) Kind() PacketKind   { return PacketEndSession }
func (*CarUpdate) Kind() PacketKind    { return PacketCarUpdate }
func (*CarInfo) Kind() PacketKind      { return PacketCarInfo }
func (*Version) Kind() PacketKind      { return PacketVersion }
func (*Chat) Kind() PacketKind         { return PacketChat }
func (*ClientLoaded) Kind() PacketKind { return PacketClientLoaded }
func (*ServerError) Kind() PacketKind  { return PacketError }
func (*LapCompleted) Kind() PacketKind { return PacketLapCompleted }
func (*ClientEvent) Kind() PacketKind  { return PacketClientEvent }
func (u *UnknownPacket) Kind() PacketKind {
	return u.Type
}

func (*SessionInfo) event()   {}
func (*EndSession) event()    {}
func (*Connection) event()    {}
func (*CarUpdate) event()     {}
func (*CarInfo) event()       {}
func (*Version) event()       {}
func (*Chat) event()          {}
func (*ClientLoaded) event()  {}
func (*ServerError) event()   {}
func (*LapCompleted) event()  {}
func (*ClientEvent) event()   {}
func (*UnknownPacket) event() {}

// SocketError is also dispatched as an event (EventSocketError).
func (*SocketError) Kind() PacketKind { return 0 }
func (*SocketError) event()           {}
