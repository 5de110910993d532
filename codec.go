package acsp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// reader reads little-endian fields from a datagram. The first failed read
// records an error and every following read returns zero values.
type reader struct {
	buf  []byte
	off  int
	kind PacketKind
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = &MalformedPacketError{Kind: r.kind, Offset: r.off, Len: len(r.buf)}
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) vec() Vector3 {
	return Vector3{X: r.f32(), Y: r.f32(), Z: r.f32()}
}

func (r *reader) narrow() string {
	n := int(r.u8())
	if b := r.take(n); b != nil {
		return decodeNarrow(b)
	}
	return ""
}

func (r *reader) wide() string {
	n := int(r.u8())
	if b := r.take(n * 4); b != nil {
		return decodeWide(b)
	}
	return ""
}

// Decode parses a single datagram. Datagrams with an unknown kind byte
// decode to an *UnknownPacket without error. Datagrams that are too short
// for their kind return an error wrapping ErrMalformedPacket.
func Decode(buf []byte) (Event, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformedPacket)
	}
	r := &reader{buf: buf, off: 1, kind: PacketKind(buf[0])}

	var ev Event
	switch r.kind {
	case PacketNewSession, PacketSessionInfo:
		ev = decodeSessionInfo(r)
	case PacketEndSession:
		ev = &EndSession{Filename: r.wide()}
	case PacketNewConnection, PacketConnectionClosed:
		ev = &Connection{
			Closed:     r.kind == PacketConnectionClosed,
			DriverName: r.wide(),
			DriverGUID: r.wide(),
			CarID:      r.u8(),
			CarModel:   r.narrow(),
			CarSkin:    r.narrow(),
		}
	case PacketCarUpdate:
		ev = &CarUpdate{
			CarID:               r.u8(),
			Pos:                 r.vec(),
			Velocity:            r.vec(),
			Gear:                r.u8(),
			EngineRPM:           r.u16(),
			NormalizedSplinePos: r.f32(),
		}
	case PacketCarInfo:
		info := &CarInfo{CarID: r.u8(), IsConnected: r.u8() != 0}
		r.u8() // reserved
		info.CarModel = r.wide()
		info.CarSkin = r.wide()
		info.DriverName = r.wide()
		info.DriverTeam = r.wide()
		info.DriverGUID = r.wide()
		ev = info
	case PacketVersion:
		ev = &Version{Version: r.u8()}
	case PacketChat:
		ev = &Chat{CarID: r.u8(), Message: r.wide()}
	case PacketClientLoaded:
		ev = &ClientLoaded{CarID: r.u8()}
	case PacketError:
		ev = &ServerError{Message: r.wide()}
	case PacketLapCompleted:
		ev = decodeLapCompleted(r)
	case PacketClientEvent:
		ev = decodeClientEvent(r)
	default:
		return &UnknownPacket{Type: r.kind, Data: buf[1:]}, nil
	}

	if r.err != nil {
		return nil, r.err
	}
	return ev, nil
}

func decodeSessionInfo(r *reader) *SessionInfo {
	return &SessionInfo{
		Fresh:               r.kind == PacketNewSession,
		Version:             r.u8(),
		SessionIndex:        r.u8(),
		CurrentSessionIndex: r.u8(),
		SessionCount:        r.u8(),
		ServerName:          r.wide(),
		Track:               r.narrow(),
		TrackConfig:         r.narrow(),
		Name:                r.narrow(),
		Type:                r.u8(),
		Time:                r.u16(),
		Laps:                r.u16(),
		WaitTime:            r.u16(),
		AmbientTemp:         r.u8(),
		RoadTemp:            r.u8(),
		WeatherGraphics:     r.narrow(),
		ElapsedMs:           int32(r.u32()),
	}
}

func decodeLapCompleted(r *reader) *LapCompleted {
	lap := &LapCompleted{
		CarID:   r.u8(),
		LapTime: r.u32(),
		Cuts:    r.u8(),
	}
	n := int(r.u8())
	if r.err == nil && n > 0 {
		lap.Leaderboard = make([]LeaderboardEntry, 0, n)
	}
	for i := 0; i < n && r.err == nil; i++ {
		lap.Leaderboard = append(lap.Leaderboard, LeaderboardEntry{
			CarID:     r.u8(),
			Time:      r.u32(),
			Laps:      r.u16(),
			Completed: r.u8() != 0,
		})
	}
	lap.GripLevel = r.f32()
	return lap
}

func decodeClientEvent(r *reader) *ClientEvent {
	ce := &ClientEvent{
		Type:  ClientEventType(r.u8()),
		CarID: r.u8(),
	}
	if ce.Type == CollisionWithCar {
		other := r.u8()
		ce.OtherCarID = &other
	}
	ce.ImpactSpeed = r.f32()
	ce.WorldPos = r.vec()
	ce.RelPos = r.vec()
	return ce
}

// fixed returns a zeroed command packet of CommandPacketLen bytes.
func fixed(k PacketKind) []byte {
	buf := make([]byte, CommandPacketLen)
	buf[0] = byte(k)
	return buf
}

// EncodeRealtimePosInterval asks the server to send a CarUpdate for every
// car at the given interval. Zero disables realtime reports.
func EncodeRealtimePosInterval(interval time.Duration) []byte {
	ms := interval.Milliseconds()
	switch {
	case ms < 0:
		ms = 0
	case ms > math.MaxUint16:
		ms = math.MaxUint16
	}
	buf := fixed(PacketRealtimePosInterval)
	binary.LittleEndian.PutUint16(buf[1:], uint16(ms))
	return buf
}

func EncodeGetCarInfo(carID uint8) []byte {
	buf := fixed(PacketGetCarInfo)
	buf[1] = carID
	return buf
}

func EncodeKickUser(carID uint8) []byte {
	buf := fixed(PacketKickUser)
	buf[1] = carID
	return buf
}

// EncodeGetSessionInfo requests information on a session. Pass
// CurrentSession for the running one.
func EncodeGetSessionInfo(sessionIndex int) ([]byte, error) {
	if sessionIndex < CurrentSession || sessionIndex > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSessionIndex, sessionIndex)
	}
	buf := fixed(PacketGetSessionInfo)
	binary.LittleEndian.PutUint16(buf[1:], uint16(int16(sessionIndex)))
	return buf, nil
}

// EncodeSendChat sends a chat message to a single car. Text longer than
// MaxStringLen characters is truncated.
func EncodeSendChat(carID uint8, text string) []byte {
	buf := make([]byte, 0, 2+wideLen(text))
	buf = append(buf, byte(PacketSendChat), carID)
	return appendWide(buf, text)
}

// EncodeBroadcastChat sends a chat message to every car.
func EncodeBroadcastChat(text string) []byte {
	buf := make([]byte, 0, 1+wideLen(text))
	buf = append(buf, byte(PacketBroadcastChat))
	return appendWide(buf, text)
}

// SessionConfig is the payload of SetSessionInfo.
type SessionConfig struct {
	SessionIndex uint8
	Name         string
	Type         uint8
	Laps         uint32
	Time         time.Duration // sent in seconds
	WaitTime     time.Duration // sent in seconds
}

func EncodeSetSessionInfo(cfg *SessionConfig) []byte {
	buf := make([]byte, 0, 2+wideLen(cfg.Name)+13)
	buf = append(buf, byte(PacketSetSessionInfo), cfg.SessionIndex)
	buf = appendWide(buf, cfg.Name)
	buf = append(buf, cfg.Type)
	buf = binary.LittleEndian.AppendUint32(buf, cfg.Laps)
	buf = binary.LittleEndian.AppendUint32(buf, seconds(cfg.Time))
	buf = binary.LittleEndian.AppendUint32(buf, seconds(cfg.WaitTime))
	return buf
}

func seconds(d time.Duration) uint32 {
	s := int64(d / time.Second)
	switch {
	case s < 0:
		return 0
	case s > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(s)
}
