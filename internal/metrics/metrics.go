package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 网关业务指标
type AppMetrics struct {
	DatagramsReceived prometheus.Counter
	DatagramsSent     *prometheus.CounterVec // labels: kind=unicast|broadcast
	SendErrors        prometheus.Counter
	FrameDecodeTotal  *prometheus.CounterVec // labels: result=ok|malformed|unknown|invalid
	MessageRouteTotal *prometheus.CounterVec // labels: command
	DeviceLinkTotal   prometheus.Counter
	DevicesRegistered prometheus.Gauge
	DevicesOnline     prometheus.Gauge
	EventsDropped     prometheus.Counter
	MQTTCommandsTotal *prometheus.CounterVec // labels: capability, result=ok|error
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udp_datagrams_received_total",
			Help: "Total UDP datagrams received (after loop-back suppression).",
		}),
		DatagramsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "udp_datagrams_sent_total",
			Help: "Total UDP datagrams sent.",
		}, []string{"kind"}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udp_send_errors_total",
			Help: "Total UDP send failures.",
		}),
		FrameDecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frame_decode_total",
			Help: "Frame decode attempts by result.",
		}, []string{"result"}),
		MessageRouteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "message_route_total",
			Help: "Routed messages by command.",
		}, []string{"command"}),
		DeviceLinkTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "device_link_total",
			Help: "Total device link and relink events.",
		}),
		DevicesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devices_registered",
			Help: "Current number of registered devices.",
		}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devices_online",
			Help: "Current number of online devices.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Events dropped because the event queue was full.",
		}),
		MQTTCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_commands_total",
			Help: "MQTT capability commands by capability and result.",
		}, []string{"capability", "result"}),
	}
	reg.MustRegister(
		m.DatagramsReceived, m.DatagramsSent, m.SendErrors,
		m.FrameDecodeTotal, m.MessageRouteTotal, m.DeviceLinkTotal,
		m.DevicesRegistered, m.DevicesOnline, m.EventsDropped, m.MQTTCommandsTotal,
	)
	return m
}
