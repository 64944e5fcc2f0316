// Package k8srunner implements the containerrunner.Runner port by running
// a job's interpreter deployment as a Kubernetes batch/v1 Job — the path
// taken when InterpreterDeployment.UsesContainer() is true and the agent
// host schedules onto a cluster rather than exec'ing locally.
package k8srunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/Strob0t/CodeForge/internal/port/containerrunner"
)

// Runner launches grid/job workloads as Kubernetes Jobs.
type Runner struct {
	clientset *kubernetes.Clientset
	namespace string
}

// Config holds K8s client configuration.
type Config struct {
	InCluster  bool
	Kubeconfig string
	Namespace  string
}

// New creates a Runner from cfg.
func New(cfg Config) (*Runner, error) {
	var restConfig *rest.Config
	var err error

	if cfg.InCluster {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("k8srunner: in-cluster config: %w", err)
		}
	} else {
		kubeconfig := cfg.Kubeconfig
		if kubeconfig == "" {
			if home, _ := os.UserHomeDir(); home != "" {
				kubeconfig = filepath.Join(home, ".kube", "config")
			}
		}
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("k8srunner: kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("k8srunner: create clientset: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
	}
	return &Runner{clientset: clientset, namespace: namespace}, nil
}

var _ containerrunner.Runner = (*Runner)(nil)

// Launch creates a Kubernetes Job for spec and returns once it is accepted
// by the API server; it does not wait for completion.
func (r *Runner) Launch(ctx context.Context, spec containerrunner.Spec) (containerrunner.Handle, error) {
	name := jobName(spec.JobID)
	job := buildJob(name, r.namespace, spec)

	created, err := r.clientset.BatchV1().Jobs(r.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return containerrunner.Handle{}, fmt.Errorf("k8srunner: create job %s: %w", name, err)
	}
	return containerrunner.Handle{ContainerID: created.Name}, nil
}

// Wait blocks, polling the Job's status, until it reaches a terminal
// condition, returning 0 on Complete and 1 on Failed.
func (r *Runner) Wait(ctx context.Context, h containerrunner.Handle) (int, error) {
	const pollInterval = 2 * time.Second

	for {
		job, err := r.clientset.BatchV1().Jobs(r.namespace).Get(ctx, h.ContainerID, metav1.GetOptions{})
		if err != nil {
			return 0, fmt.Errorf("k8srunner: get job %s: %w", h.ContainerID, err)
		}

		for _, cond := range job.Status.Conditions {
			if cond.Status != corev1.ConditionTrue {
				continue
			}
			switch cond.Type {
			case batchv1.JobComplete:
				return 0, nil
			case batchv1.JobFailed:
				return 1, fmt.Errorf("k8srunner: job %s failed: %s", h.ContainerID, cond.Message)
			}
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func jobName(gridJobID string) string {
	return fmt.Sprintf("grid-%s", sanitize(gridJobID))
}

// sanitize makes a job id safe as a DNS-1123 label fragment.
func sanitize(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

func buildJob(name, namespace string, spec containerrunner.Spec) *batchv1.Job {
	env := make([]corev1.EnvVar, 0, len(spec.Environment))
	for k, v := range spec.Environment {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}

	image := spec.Interpreter.Repository
	if spec.Interpreter.Digest != "" {
		image = fmt.Sprintf("%s@%s", image, spec.Interpreter.Digest)
	} else if spec.Interpreter.Tag != "" {
		image = fmt.Sprintf("%s:%s", image, spec.Interpreter.Tag)
	}
	if spec.Interpreter.ImageName != "" {
		image = spec.Interpreter.ImageName
	}

	backoffLimit := int32(0)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"grid-job-id": name},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "worker",
							Image:   image,
							Command: spec.Args,
							Env:     env,
						},
					},
				},
			},
		},
	}
}
