package bootstrap

import (
	"fmt"

	domainprops "propchat/internal/domain/properties"
	"propchat/internal/infra/config"
	mongostore "propchat/internal/infra/db/mongo"
	"propchat/internal/infra/properties"
	"propchat/internal/infra/storage/memory"
)

// OpenProperties picks the property directory. The in-memory directory is
// returned separately so fixtures can be loaded into it.
func OpenProperties(cfg config.Config, st *Storage) (domainprops.Directory, *memory.PropertyDirectory, error) {
	switch cfg.PropertySource {
	case config.PropertiesMemory:
		dir := memory.NewPropertyDirectory()
		return dir, dir, nil
	case config.PropertiesMongo:
		if st == nil || st.Mongo == nil {
			return nil, nil, fmt.Errorf("PROPERTY_SOURCE=%s needs a mongo connection", cfg.PropertySource)
		}
		return mongostore.NewPropertyDirectory(st.Mongo.DB), nil, nil
	case config.PropertiesHTTP:
		return properties.NewHTTPDirectory(cfg.PropertyAPIURL, cfg.PropertyAPITimeout), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported property source %q", cfg.PropertySource)
	}
}
