package tasks

import "github.com/prometheus/client_golang/prometheus"

var taskOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tasks_operations_total",
		Help: "Successful task writes by operation",
	},
	[]string{"op"},
)

func init() {
	prometheus.MustRegister(taskOps)
}
