package memgraph

// Image coordinates for the Memgraph containers.
const (
	Registry = "docker.io"

	Image = "memgraph/memgraph"
	Tag   = "latest"

	MAGEImage = "memgraph/memgraph-mage"
	MAGETag   = "latest"

	LabImage = "memgraph/lab"
	LabTag   = "latest"
)

// Container-side constants of the Memgraph images.
const (
	// PrimaryEndpointName is the bolt endpoint of the database.
	PrimaryEndpointName = "tcp"

	// LogsEndpointName is the websocket log stream of the database.
	LogsEndpointName = "logs"

	// LabEndpointName is the HTTP endpoint of Memgraph Lab.
	LabEndpointName = "http"

	BoltPort = 7687
	LogsPort = 7444
	LabPort  = 3000

	// DataPath is where Memgraph keeps snapshots and WAL files.
	DataPath = "/var/lib/memgraph"

	// Environment variables Memgraph Lab reads to auto-connect on startup.
	EnvQuickConnectHost = "QUICK_CONNECT_MG_HOST"
	EnvQuickConnectPort = "QUICK_CONNECT_MG_PORT"
)
