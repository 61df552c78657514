// prometheus.go - Prometheus instrumentation.
// Copyright (C) 2026  The GhostTalk Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

//go:build !noprometheus

// Package instrument exports relay and chatroom counters to Prometheus.
package instrument

import (
	"errors"
	goLog "log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	relayReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghosttalk_relay_received_total",
			Help: "Number of messages read by relays",
		},
	)
	relayForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghosttalk_relay_forwarded_total",
			Help: "Number of messages a relay forwarded, by next hop kind",
		},
		[]string{"target"},
	)
	relayDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghosttalk_relay_dropped_total",
			Help: "Number of messages a relay dropped, by reason",
		},
		[]string{"reason"},
	)
	outgoingConns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghosttalk_outgoing_total_connections",
			Help: "Number of established one-shot outgoing connections",
		},
	)
	forwardFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghosttalk_forward_failures_total",
			Help: "Number of failed one-shot forwards, by failed operation",
		},
		[]string{"op"},
	)
	chatroomSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghosttalk_chatroom_sessions",
			Help: "Number of registered chatroom sessions",
		},
	)
	chatroomBroadcasts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghosttalk_chatroom_broadcasts_total",
			Help: "Number of messages fanned out by the chatroom",
		},
	)
	chatroomDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghosttalk_chatroom_dropped_total",
			Help: "Number of chatroom sessions or messages dropped, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		relayReceived,
		relayForwarded,
		relayDropped,
		outgoingConns,
		forwardFailures,
		chatroomSessions,
		chatroomBroadcasts,
		chatroomDropped,
	)
}

// Start exposes the registered metrics via HTTP on address.
func Start(address string, errorLog *goLog.Logger) (*Server, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ErrorLog:          errorLog,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) && errorLog != nil {
			errorLog.Printf("metrics listener terminated: %v", err)
		}
	}()
	return &Server{srv: srv, addr: l.Addr()}, nil
}

// RelayReceived increments the counter of messages read by relays.
func RelayReceived() {
	relayReceived.Inc()
}

// RelayForwarded increments the forwarded counter for target ("relay" or
// "chatroom").
func RelayForwarded(target string) {
	relayForwarded.With(prometheus.Labels{"target": target}).Inc()
}

// RelayDropped increments the dropped counter for reason.
func RelayDropped(reason string) {
	relayDropped.With(prometheus.Labels{"reason": reason}).Inc()
}

// Outgoing increments the counter for outgoing connections.
func Outgoing() {
	outgoingConns.Inc()
}

// ForwardFailure increments the failed forward counter for op.
func ForwardFailure(op string) {
	forwardFailures.With(prometheus.Labels{"op": op}).Inc()
}

// ChatroomSessions sets the number of registered sessions.
func ChatroomSessions(n int) {
	chatroomSessions.Set(float64(n))
}

// ChatroomBroadcast increments the fan-out counter.
func ChatroomBroadcast() {
	chatroomBroadcasts.Inc()
}

// ChatroomDropped increments the chatroom dropped counter for reason.
func ChatroomDropped(reason string) {
	chatroomDropped.With(prometheus.Labels{"reason": reason}).Inc()
}
