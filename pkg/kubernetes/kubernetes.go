// Package kubernetes provides a latch.Source implementation for Kubernetes
// ConfigMaps and Secrets using the Watch API.
package kubernetes

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// ResourceType specifies the type of Kubernetes resource to watch.
type ResourceType int

const (
	// ConfigMap watches a ConfigMap resource.
	ConfigMap ResourceType = iota
	// Secret watches a Secret resource.
	Secret
)

// Source watches a key within a Kubernetes ConfigMap or Secret that holds a
// status document.
type Source struct {
	client       kubernetes.Interface
	namespace    string
	name         string
	key          string
	resourceType ResourceType
}

// Option configures a Source.
type Option func(*Source)

// WithResourceType sets the resource type to watch.
// Defaults to ConfigMap.
func WithResourceType(rt ResourceType) Option {
	return func(s *Source) {
		s.resourceType = rt
	}
}

// New creates a new Source for the given Kubernetes resource.
// The key specifies which data key within the ConfigMap/Secret holds the
// status document.
func New(client kubernetes.Interface, namespace, name, key string, opts ...Option) *Source {
	s := &Source{
		client:       client,
		namespace:    namespace,
		name:         name,
		key:          key,
		resourceType: ConfigMap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch begins watching the Kubernetes resource and returns a channel that
// emits the key's value whenever it changes. The current value is emitted
// immediately to support the initial mirror.
func (s *Source) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			if err := s.watchLoop(ctx, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				// Reconnect on error
				continue
			}
			return
		}
	}()

	return out, nil
}

func (s *Source) watchLoop(ctx context.Context, out chan<- []byte) error {
	// Get initial value
	value, resourceVersion, err := s.getValue(ctx)
	if err != nil {
		return err
	}

	if value != nil {
		select {
		case out <- value:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Start watching
	opts := metav1.ListOptions{
		FieldSelector:   fmt.Sprintf("metadata.name=%s", s.name),
		ResourceVersion: resourceVersion,
		Watch:           true,
	}

	var watcher watch.Interface
	if s.resourceType == ConfigMap {
		watcher, err = s.client.CoreV1().ConfigMaps(s.namespace).Watch(ctx, opts)
	} else {
		watcher, err = s.client.CoreV1().Secrets(s.namespace).Watch(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return fmt.Errorf("watch channel closed")
			}

			if event.Type == watch.Error {
				return fmt.Errorf("watch error")
			}

			if event.Type == watch.Deleted {
				continue
			}

			value := s.extractValue(event.Object)
			if value != nil {
				select {
				case out <- value:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (s *Source) getValue(ctx context.Context) ([]byte, string, error) {
	if s.resourceType == ConfigMap {
		cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
		if err != nil {
			return nil, "", err
		}
		return []byte(cm.Data[s.key]), cm.ResourceVersion, nil
	}

	secret, err := s.client.CoreV1().Secrets(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		return nil, "", err
	}
	return secret.Data[s.key], secret.ResourceVersion, nil
}

func (s *Source) extractValue(obj interface{}) []byte {
	if s.resourceType == ConfigMap {
		if cm, ok := obj.(*corev1.ConfigMap); ok {
			return []byte(cm.Data[s.key])
		}
	} else {
		if secret, ok := obj.(*corev1.Secret); ok {
			return secret.Data[s.key]
		}
	}
	return nil
}
