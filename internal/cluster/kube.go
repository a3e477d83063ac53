package cluster

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	zerrors "github.com/zzenonn/zraid/internal/errors"
)

// KubeClient talks to a Kubernetes API server.
type KubeClient struct {
	clientset kubernetes.Interface
}

// NewKubeClient builds a client from kubeconfig, or from the in-cluster
// service account when kubeconfig is empty.
func NewKubeClient(kubeconfig string) (*KubeClient, error) {
	var (
		restConfig *rest.Config
		err        error
	)
	if kubeconfig == "" {
		restConfig, err = rest.InClusterConfig()
	} else {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, zerrors.Collaborator("load kubeconfig", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, zerrors.Collaborator("create clientset", err)
	}
	return NewKubeClientFromClientset(clientset), nil
}

// NewKubeClientFromClientset wraps an existing clientset.
func NewKubeClientFromClientset(clientset kubernetes.Interface) *KubeClient {
	return &KubeClient{clientset: clientset}
}

func (c *KubeClient) ListNodes(ctx context.Context, selector string) ([]NodeInfo, error) {
	list, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, zerrors.Collaborator("list nodes", err)
	}

	nodes := make([]NodeInfo, 0, len(list.Items))
	for _, n := range list.Items {
		nodes = append(nodes, NodeInfo{
			Name:          n.Name,
			Ready:         nodeReady(&n),
			Unschedulable: n.Spec.Unschedulable,
		})
	}
	return nodes, nil
}

func nodeReady(n *corev1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func (c *KubeClient) SetUnschedulable(ctx context.Context, node string, unschedulable bool) error {
	patch := []byte(fmt.Sprintf(`{"spec":{"unschedulable":%t}}`, unschedulable))
	_, err := c.clientset.CoreV1().Nodes().Patch(ctx, node, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return zerrors.Collaborator("patch node "+node, err)
	}
	return nil
}

func (c *KubeClient) ListPodsOnNode(ctx context.Context, node string) ([]PodRef, error) {
	list, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("spec.nodeName", node).String(),
	})
	if err != nil {
		return nil, zerrors.Collaborator("list pods on "+node, err)
	}

	var pods []PodRef
	for _, p := range list.Items {
		// Some API fakes and proxies ignore field selectors.
		if p.Spec.NodeName != node {
			continue
		}
		pods = append(pods, PodRef{Namespace: p.Namespace, Name: p.Name})
	}
	return pods, nil
}

// DeletePod deletes a pod. A pod that is already gone is not an error.
func (c *KubeClient) DeletePod(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return zerrors.Collaborator("delete pod "+namespace+"/"+name, err)
	}
	return nil
}

func (c *KubeClient) ListPods(ctx context.Context, namespace string) ([]PodStatus, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, zerrors.Collaborator("list pods in "+namespace, err)
	}

	pods := make([]PodStatus, 0, len(list.Items))
	for _, p := range list.Items {
		status := PodStatus{
			Namespace: p.Namespace,
			Name:      p.Name,
			Node:      p.Spec.NodeName,
			Phase:     string(p.Status.Phase),
		}
		if len(p.Status.ContainerStatuses) > 0 {
			status.Restarts = p.Status.ContainerStatuses[0].RestartCount
		}
		pods = append(pods, status)
	}
	return pods, nil
}
