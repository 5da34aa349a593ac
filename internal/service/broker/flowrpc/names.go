// Package flowrpc names the RPC surface of the options order flow data broker.
// Payloads on every method are google.protobuf.Struct messages.
package flowrpc

const ServiceName = "optionsflow.v1.OptionsOrderFlowService"

const (
	MethodSnapshot  = "GetOptionsOrderFlowSnapshot"
	MethodConfigure = "ConfigureOptionsOrderFlowMonitoring"
	MethodStatus    = "GetOptionsOrderFlowMonitoringStatus"
)

// FullMethod returns the "/service/method" path used on the wire.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ActionAdd asks the broker to start monitoring the listed contracts.
const ActionAdd = "ADD"
