package router

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

// Dialer opens the backend leg of a proxied connection.
type Dialer interface {
	Dial(ctx context.Context, unit *models.ComputeUnit) (net.Conn, error)
}

type TCPDialer struct {
	Timeout time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context, unit *models.ComputeUnit) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	return nd.DialContext(ctx, "tcp", unit.Addr)
}

// Proxy accepts client connections and streams bytes to the admitted compute
// unit. It never inspects the wire protocol; routing happens purely at
// connection granularity.
type Proxy struct {
	router   *Router
	dialer   Dialer
	addr     string
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProxy(addr string, r *Router, dialer Dialer) *Proxy {
	if dialer == nil {
		dialer = &TCPDialer{Timeout: 3 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Proxy{
		router: r,
		dialer: dialer,
		addr:   addr,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Proxy) Start() error {
	listener, err := net.Listen("tcp", p.addr)
	if err != nil {
		return err
	}
	p.listener = listener

	logger.Infof("Connection proxy listening on %s", listener.Addr())

	p.wg.Add(1)
	go p.acceptLoop()

	return nil
}

// Addr returns the bound listen address, useful when the configured port is 0.
func (p *Proxy) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

func (p *Proxy) acceptLoop() {
	defer p.wg.Done()

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warnf("Accept failed: %v", err)
			continue
		}

		p.wg.Add(1)
		go p.handle(conn)
	}
}

func (p *Proxy) handle(client net.Conn) {
	defer p.wg.Done()
	defer client.Close()

	unit, connID, err := p.router.Admit(p.ctx)
	if err != nil {
		logger.Warnf("Admission refused for %s: %v", client.RemoteAddr(), err)
		return
	}

	backend, err := p.dialer.Dial(p.ctx, unit)
	if err != nil {
		p.router.Release(connID)
		logger.WithUnit(unit.ID).Errorf("Backend dial failed: %v", err)
		return
	}
	defer backend.Close()

	// Binding the client conn lets a forced drain reset it mid-stream.
	p.router.Bind(connID, client)
	defer p.router.Release(connID)

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(backend, client)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(client, backend)
		done <- struct{}{}
	}()

	// Either side closing ends the session; closing both conns unblocks the
	// other copy.
	<-done
	client.Close()
	backend.Close()
	<-done
}

func (p *Proxy) Stop() {
	p.cancel()
	if p.listener != nil {
		p.listener.Close()
	}
	p.wg.Wait()
}
