package commands

import (
	"go.uber.org/zap"

	"evalgo.org/mgapphost/internal/config"
	"evalgo.org/mgapphost/pkg/appmodel"
	"evalgo.org/mgapphost/pkg/memgraph"
)

// buildModel describes the configured Memgraph deployment as an application
// model. A bind mount takes precedence over the data volume.
func buildModel(cfg *config.Config, logger *zap.SugaredLogger) (*appmodel.Application, *appmodel.ResourceBuilder[*memgraph.Resource], error) {
	b := appmodel.NewBuilder(appmodel.WithLogger(logger))

	mc := cfg.Memgraph
	db := memgraph.Add(b, mc.Name, mc.Port, mc.LogPort)
	if mc.MAGE {
		memgraph.WithMAGE(db)
	}

	switch {
	case mc.DataBindMount != "":
		memgraph.WithDataBindMount(db, mc.DataBindMount, mc.ReadOnly)
	case mc.DataVolume:
		memgraph.WithDataVolume(db, mc.DataVolumeName, mc.ReadOnly)
	}

	if cfg.Lab.Enabled {
		memgraph.WithLab(db, func(lab *appmodel.ResourceBuilder[*memgraph.LabResource]) {
			if cfg.Lab.HostPort != 0 {
				memgraph.WithHostPort(lab, cfg.Lab.HostPort)
			}
		}, cfg.Lab.Name)
	}

	app, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return app, db, nil
}
