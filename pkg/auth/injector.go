// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package auth injects the identity header both proxies attach to every
// outbound request. Same "attach auth to an outbound *http.Request"
// shape as an HMAC request-signer, but this authorization model carries
// no secret to sign with — the peer identity itself, asserted via a
// header, is the credential. TLS on the wire is not a trust anchor here.
package auth

import (
	"fmt"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"github.com/ollana/ollanad/pkg/ollanaconst"
)

// Injector attaches a fixed local device identity to outbound requests.
type Injector struct {
	DeviceID string
}

// NewInjector constructs an Injector for the given local device identity.
func NewInjector(deviceID string) *Injector {
	return &Injector{DeviceID: deviceID}
}

// Attach sets the X-Ollana-Device-Id header on req. Callers pass the
// local device identity; it is still validated as a legal header field
// value before being set on an outbound request.
func (i *Injector) Attach(req *http.Request) error {
	if i.DeviceID == "" {
		return fmt.Errorf("injector device id must be set")
	}
	if !httpguts.ValidHeaderFieldValue(i.DeviceID) {
		return fmt.Errorf("device id is not a valid header field value")
	}

	req.Header.Set(ollanaconst.HeaderDeviceID, i.DeviceID)
	return nil
}
