package namespaces

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
)

// KubeSource lists active namespaces from the cluster the recommender runs in
// or the one selected by a kubeconfig.
type KubeSource struct {
	clientset     kubernetes.Interface
	labelSelector string
	exclude       []string
}

// NewKubeSource builds a client from kubeconfig, falling back to
// ~/.kube/config and then to the in-cluster service account.
func NewKubeSource(kubeconfig, labelSelector string, exclude []string) (*KubeSource, error) {
	config, err := restConfig(kubeconfig)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig, "failed to build kubernetes config", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfig, "failed to create clientset", err)
	}

	return NewKubeSourceForClient(clientset, labelSelector, exclude), nil
}

// NewKubeSourceForClient wraps an existing clientset.
func NewKubeSourceForClient(clientset kubernetes.Interface, labelSelector string, exclude []string) *KubeSource {
	return &KubeSource{
		clientset:     clientset,
		labelSelector: labelSelector,
		exclude:       append([]string(nil), exclude...),
	}
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			candidate := filepath.Join(home, ".kube", "config")
			if _, err := os.Stat(candidate); err == nil {
				kubeconfig = candidate
			}
		}
	}
	if kubeconfig == "" {
		return rest.InClusterConfig()
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// List returns active namespaces in name order, minus excluded ones.
func (k *KubeSource) List(ctx context.Context) ([]string, error) {
	nsList, err := k.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{
		LabelSelector: k.labelSelector,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeTransport, "failed to list namespaces", err)
	}

	var names []string
	for _, ns := range nsList.Items {
		if ns.Status.Phase == corev1.NamespaceTerminating {
			continue
		}
		names = append(names, ns.Name)
	}
	names = sorted(clean(names, k.exclude))

	log.Info().
		Int("namespaces", len(names)).
		Str("selector", k.labelSelector).
		Msg("Discovered namespaces in cluster")
	return names, nil
}
