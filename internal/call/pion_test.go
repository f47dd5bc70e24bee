package call

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/media"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/signaling"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/transport"
)

func vnetOptions(t *testing.T, ips ...string) []transport.Options {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	var opts []transport.Options
	for _, ip := range ips {
		n, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ip}})
		if err != nil {
			t.Fatalf("new net %s: %v", ip, err)
		}
		if err := router.AddNet(n); err != nil {
			t.Fatalf("add net %s: %v", ip, err)
		}
		opts = append(opts, transport.Options{Net: n})
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}
	return opts
}

func waitLong(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCallOverPion(t *testing.T) {
	opts := vnetOptions(t, "10.0.0.1", "10.0.0.2")
	relay := signaling.NewMemoryRelay()

	newSession := func(role protocol.Role, id string, o transport.Options) *Session {
		s, err := New(
			Params{RoomID: room, Role: role, UserID: id, UserName: "User " + id},
			Deps{
				Relay:      relay.NewChannel(),
				Media:      media.NewDevice(media.DeviceOptions{Name: id, HasMicrophone: true, HasCamera: true}),
				NewPeer:    TransportFactory(o),
				DeviceName: "device " + id,
			},
		)
		if err != nil {
			t.Fatalf("new session %s: %v", id, err)
		}
		t.Cleanup(s.End)
		return s
	}

	patient := newSession(protocol.RolePatient, "p1", opts[1])
	patient.Start(context.Background())
	waitState(t, patient, StateNegotiating)

	doctor := newSession(protocol.RoleDoctor, "d1", opts[0])
	doctor.Start(context.Background())

	waitLong(t, "doctor connected", func() bool { return doctor.Status().State == StateConnected })
	waitLong(t, "patient connected", func() bool { return patient.Status().State == StateConnected })

	waitLong(t, "device info exchanged", func() bool {
		return strings.HasPrefix(doctor.Status().RemoteDevice, "device p1") &&
			strings.HasPrefix(patient.Status().RemoteDevice, "device d1")
	})

	doctor.ToggleVideo()
	waitLong(t, "remote video off", func() bool {
		rm := patient.Status().RemoteMedia
		return rm != nil && !rm.VideoEnabled && rm.AudioEnabled
	})

	st := patient.Status()
	if st.Remote == nil || st.Remote.ID != "d1" || st.Remote.Role != protocol.RoleDoctor {
		t.Fatalf("patient remote = %+v", st.Remote)
	}

	doctor.End()
	patient.End()
	if relay.Subscribers(room) != 0 {
		t.Fatalf("subscribers left: %d", relay.Subscribers(room))
	}
}
