package serial

import (
	"context"
	"io"
	"sync"
	"time"

	tty "github.com/goburrow/serial"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaudRate = 57600

	readRetryDelay = 100 * time.Millisecond
	writeChunkSize = 32
)

type PortConfig struct {
	Address  string
	BaudRate int
	Timeout  time.Duration
}

// OpenPort opens the UART as 8N1.
func OpenPort(cfg PortConfig) (io.ReadWriteCloser, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	p, err := tty.Open(&tty.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "serial: open %s", cfg.Address)
	}

	return p, nil
}

// Link connects a port to a framer and an outbound queue. The receiver feeds
// every byte read into the framer; the transmitter drains the queue whenever
// it is signalled ready.
type Link struct {
	name   string
	port   io.ReadWriteCloser
	framer *Framer
	queue  *Queue
}

func NewLink(name string, port io.ReadWriteCloser, framer *Framer, queue *Queue) *Link {
	return &Link{name: name, port: port, framer: framer, queue: queue}
}

// Run blocks until ctx is done, then closes the port.
func (l *Link) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		l.receive(ctx)
	}()
	go func() {
		defer wg.Done()
		l.transmit(ctx)
	}()

	<-ctx.Done()
	err := l.port.Close()
	wg.Wait()

	logrus.Infof("%s: serial link closed", l.name)

	return errors.Wrapf(err, "%s: serial close", l.name)
}

func (l *Link) receive(ctx context.Context) {
	buf := make([]byte, 64)
	for {
		n, err := l.port.Read(buf)
		for _, b := range buf[:n] {
			l.framer.OnByteReceived(b)
		}

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			// read timeouts surface as errors as well
			logrus.Tracef("%s: serial read: %s", l.name, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
		}
	}
}

func (l *Link) transmit(ctx context.Context) {
	chunk := make([]byte, 0, writeChunkSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.queue.Ready():
		}

		for {
			chunk = chunk[:0]
			for len(chunk) < writeChunkSize {
				b, ok := l.queue.DrainOne()
				if !ok {
					break
				}
				chunk = append(chunk, b)
			}

			if len(chunk) == 0 {
				break
			}

			if _, err := l.port.Write(chunk); err != nil {
				logrus.Errorf("%s: serial write: %s", l.name, err)
			}
		}
	}
}
