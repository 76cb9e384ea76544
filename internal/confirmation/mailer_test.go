package confirmation

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// silentSMTP accepts connections and never sends the 220 greeting.
func silentSMTP(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestSMTPMailerStalledServerHonoursContext(t *testing.T) {
	host, port := silentSMTP(t)
	m, err := NewSMTPMailer(SMTPConfig{
		Host:        host,
		Port:        port,
		FromAddress: "tickets@infest.example",
		Timeout:     4 * time.Second,
	})
	require.NoError(t, err)

	start := time.Now()
	var g errgroup.Group
	errs := make([]error, 3)
	for i := range errs {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			errs[i] = m.Send(ctx, Message{
				To:      "guest" + strconv.Itoa(i) + "@example.com",
				Subject: "ticket",
				HTML:    "<p>hi</p>",
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Less(t, time.Since(start), 2*time.Second)
	for _, err := range errs {
		assert.Error(t, err)
	}
}

func TestSMTPMailerFreesSlotAfterStall(t *testing.T) {
	host, port := silentSMTP(t)
	m, err := NewSMTPMailer(SMTPConfig{Host: host, Port: port, FromAddress: "tickets@infest.example", Timeout: 4 * time.Second})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		start := time.Now()
		err := m.Send(ctx, Message{To: "guest@example.com", Subject: "ticket", HTML: "<p>hi</p>"})
		cancel()
		require.Error(t, err)
		assert.Less(t, time.Since(start), time.Second, "attempt %d", i)
	}
}
