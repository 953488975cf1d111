package domain

import "errors"

var ErrDecode = errors.New("malformed encoded path")
var ErrStaleRecord = errors.New("position record is not newer than the held one")
var ErrTransport = errors.New("position transport failure")
var ErrUnreliableFix = errors.New("position too far from route to be reliable")
var ErrNoRoute = errors.New("no route geometry available")
var ErrInvalidCoordinate = errors.New("invalid coordinate")
var ErrFutureObservation = errors.New("observation time is ahead of the server clock")
var ErrSessionNotFound = errors.New("tracking session not found")
var ErrSessionExists = errors.New("tracking session already attached")
var ErrShuttingDown = errors.New("tracking service is shutting down")
var ErrRouteNotFound = errors.New("route not found")
var ErrNoPosition = errors.New("no position reported yet")
var ErrForbidden = errors.New("access forbidden")
var ErrInvalidTransition = errors.New("invalid deviation status transition")
