package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const serviceAccountNamespace = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// ConfigMapSource loads content from Kubernetes ConfigMaps. Paths have the
// form "configmap-name/key".
type ConfigMapSource struct {
	client    kubernetes.Interface
	namespace string
}

// ConfigMapSourceConfig configures a ConfigMap source
type ConfigMapSourceConfig struct {
	Namespace string
	// Kubeconfig is used outside the cluster; empty means in-cluster config
	Kubeconfig string
}

// NewConfigMapSource connects to the API server described by config
func NewConfigMapSource(config *ConfigMapSourceConfig) (*ConfigMapSource, error) {
	if config == nil {
		config = &ConfigMapSourceConfig{}
	}

	var (
		restConfig *rest.Config
		err        error
	)
	if config.Kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", config.Kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return NewConfigMapSourceWithClient(client, config.Namespace), nil
}

// NewConfigMapSourceWithClient uses an existing clientset. An empty
// namespace falls back to the pod's service account namespace, then
// "default".
func NewConfigMapSourceWithClient(client kubernetes.Interface, namespace string) *ConfigMapSource {
	if namespace == "" {
		namespace = "default"
		if ns, err := os.ReadFile(serviceAccountNamespace); err == nil {
			namespace = strings.TrimSpace(string(ns))
		}
	}
	return &ConfigMapSource{client: client, namespace: namespace}
}

// Load returns the value stored under key in the named ConfigMap
func (s *ConfigMapSource) Load(ctx context.Context, path string) (io.ReadCloser, error) {
	name, key, err := splitConfigMapPath(path)
	if err != nil {
		return nil, err
	}

	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get ConfigMap %s/%s: %w", s.namespace, name, err)
	}

	content, ok := configMapValue(cm, key)
	if !ok {
		return nil, fmt.Errorf("key %s not found in ConfigMap %s/%s", key, s.namespace, name)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// Watch calls onChange whenever the ConfigMap is modified, until ctx is done
func (s *ConfigMapSource) Watch(ctx context.Context, path string, onChange func()) error {
	name, _, err := splitConfigMapPath(path)
	if err != nil {
		return err
	}

	for {
		w, err := s.client.CoreV1().ConfigMaps(s.namespace).Watch(ctx, metav1.ListOptions{
			FieldSelector: "metadata.name=" + name,
		})
		if err != nil {
			return fmt.Errorf("failed to watch ConfigMap %s/%s: %w", s.namespace, name, err)
		}

		if done := s.consume(ctx, w, name, onChange); done {
			return ctx.Err()
		}
	}
}

// consume drains one watch. It returns true when ctx ended, false when the
// server closed the watch and it should be reopened.
func (s *ConfigMapSource) consume(ctx context.Context, w watch.Interface, name string, onChange func()) bool {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return true
		case event, ok := <-w.ResultChan():
			if !ok {
				return false
			}
			cm, isCM := event.Object.(*corev1.ConfigMap)
			if !isCM || cm.Name != name {
				continue
			}
			switch event.Type {
			case watch.Added, watch.Modified:
				onChange()
			}
		}
	}
}

// Type returns the source type
func (s *ConfigMapSource) Type() string {
	return "configmap"
}

func configMapValue(cm *corev1.ConfigMap, key string) (string, bool) {
	if v, ok := cm.Data[key]; ok {
		return v, true
	}
	if v, ok := cm.BinaryData[key]; ok {
		return string(v), true
	}
	return "", false
}

func splitConfigMapPath(path string) (string, string, error) {
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid path format %q, expected: configmap-name/key", path)
	}
	return parts[0], parts[1], nil
}
