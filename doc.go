// Package mgapphost hosts Memgraph graph databases for local development.
//
// An application is described as a model of resources. Memgraph and the
// Memgraph Lab web UI are added to that model through hosting helpers and
// the model is then run as Docker containers, printed as a deployment
// manifest, or served over a small read-only REST API.
//
// # Packages
//
//   - pkg/appmodel: resources, annotations, endpoint allocation, reference
//     expressions, lifecycle events and the manifest writer
//   - pkg/memgraph: Add, WithLab, WithDataVolume, WithDataBindMount,
//     WithHostPort and WithMAGE
//   - internal/orchestration: runs an application on Docker
//   - internal/health: Bolt readiness probe
//   - internal/api: Echo server exposing resources and the manifest
//   - internal/commands: the mgapphost CLI
//
// # Usage
//
//	b := appmodel.NewBuilder()
//	db := memgraph.Add(b, "memgraph", 0, 0)
//	memgraph.WithDataVolume(db, "", false)
//	memgraph.WithLab(db, func(lab *appmodel.ResourceBuilder[*memgraph.LabResource]) {
//		memgraph.WithHostPort(lab, 3000)
//	}, "")
//
//	app, err := b.Build()
//
// Run from the command line:
//
//	mgapphost run --config config.yaml
//	mgapphost manifest --format yaml
//
// # Configuration
//
// Configuration is read from a YAML file and from environment variables
// with the MG_ prefix, for example MG_MEMGRAPH_PORT=7687.
package mgapphost
