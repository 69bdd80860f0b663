package link

import (
	"net/netip"
	"time"

	"github.com/linkmq/linkmq-go/pkg/log"
)

func (l *Link) debug(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Link) info(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l *Link) warn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

// event returns an event stamped with the connection identity of s.
func (l *Link) event(s *socket, layer log.Layer, category log.Category) log.Event {
	ev := log.Event{
		Timestamp: l.clock.Now(),
		Layer:     layer,
		Category:  category,
	}
	if s != nil {
		ev.ConnectionID = string(s.id)
		ev.Direction = s.dir
		ev.LocalAddr = addrString(s.local)
		ev.RemoteAddr = addrString(s.peer)
	}
	return ev
}

func (l *Link) emitState(s *socket, entity log.StateEntity, oldState, newState, reason string, addr netip.AddrPort) {
	layer := log.LayerLink
	switch entity {
	case log.StateEntityConnection:
		layer = log.LayerSocket
	case log.StateEntityHandshake:
		layer = log.LayerTLS
	}
	ev := l.event(s, layer, log.CategoryState)
	if s == nil {
		switch entity {
		case log.StateEntityListener:
			ev.LocalAddr = addrString(addr)
		default:
			ev.Direction = log.DirectionOut
			ev.RemoteAddr = addrString(addr)
		}
	}
	ev.StateChange = &log.StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	l.plog.Log(ev)
}

func (l *Link) emitSchedule(action log.ScheduleAction, addr netip.AddrPort, due time.Time, interval time.Duration) {
	ev := l.event(nil, log.LayerLink, log.CategorySchedule)
	ev.Direction = log.DirectionOut
	ev.RemoteAddr = addrString(addr)
	ev.Schedule = &log.ScheduleEvent{
		Action:   action,
		Address:  addrString(addr),
		Due:      due,
		Interval: interval,
	}
	l.plog.Log(ev)
}

func (l *Link) emitData(s *socket, dir log.Direction, data []byte) {
	layer := log.LayerSocket
	if s.security == SecurityTLS {
		layer = log.LayerTLS
	}
	ev := l.event(s, layer, log.CategoryData)
	ev.Direction = dir
	ev.Data = log.NewDataEvent(data, l.cfg.CaptureBytes)
	l.plog.Log(ev)
}

func (l *Link) emitError(s *socket, layer log.Layer, context string, err error, addr netip.AddrPort) {
	ev := l.event(s, layer, log.CategoryError)
	if s == nil && addr.IsValid() {
		if _, ok := l.listeners[addr]; ok {
			ev.LocalAddr = addrString(addr)
		} else {
			ev.Direction = log.DirectionOut
			ev.RemoteAddr = addrString(addr)
		}
	}
	ev.Error = &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Code:    errnoCode(err),
		Context: context,
	}
	l.plog.Log(ev)
}

func addrString(ap netip.AddrPort) string {
	if !ap.IsValid() {
		return ""
	}
	return ap.String()
}
