package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

// Service останавливается при завершении приложения
type Service interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// Manager управляет graceful shutdown приложения
type Manager struct {
	services []Service
	timeout  time.Duration
	mu       sync.RWMutex
}

// NewManager создает новый менеджер shutdown
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		services: make([]Service, 0),
		timeout:  timeout,
	}
}

// Register регистрирует сервис. Сервисы останавливаются в порядке регистрации.
func (m *Manager) Register(service Service) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.services = append(m.services, service)
	logutils.Log.WithField("service", service.Name()).Info("Service registered for graceful shutdown")
}

// WaitForShutdown ожидает сигнал или отмену ctx и выполняет graceful shutdown
func (m *Manager) WaitForShutdown(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logutils.Log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case <-ctx.Done():
		logutils.Log.Info("Context cancelled, shutting down")
	}
	return m.Shutdown()
}

// Shutdown останавливает сервисы по очереди. Задача должна успеть отправить
// отчет до закрытия базы, поэтому порядок важен.
func (m *Manager) Shutdown() error {
	logutils.Log.Info("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.RLock()
	services := make([]Service, len(m.services))
	copy(services, m.services)
	m.mu.RUnlock()

	var errs []error
	for _, svc := range services {
		logutils.Log.WithField("service", svc.Name()).Info("Shutting down service")
		if err := svc.Shutdown(ctx); err != nil {
			logutils.Log.WithError(err).WithField("service", svc.Name()).Error("Error during service shutdown")
			errs = append(errs, fmt.Errorf("service %s shutdown failed: %w", svc.Name(), err))
			continue
		}
		logutils.Log.WithField("service", svc.Name()).Info("Service shutdown completed")
	}

	if len(errs) > 0 {
		logutils.Log.WithField("error_count", len(errs)).Error("Some services failed to shutdown gracefully")
		return fmt.Errorf("shutdown completed with %d errors: %w", len(errs), errs[0])
	}

	logutils.Log.Info("Graceful shutdown completed successfully")
	return nil
}

// Closer оборачивает io.Closer-подобный ресурс, например базу данных
type Closer struct {
	name  string
	close func() error
}

// NewCloser создает shutdown handler для ресурса с методом Close
func NewCloser(name string, closeFn func() error) *Closer {
	return &Closer{name: name, close: closeFn}
}

func (c *Closer) Shutdown(_ context.Context) error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

func (c *Closer) Name() string {
	return c.name
}
