package sqlitexporter

type Config struct {
	Path string
}

func NewConfig() *Config {
	return &Config{
		Path: "streamspy.db",
	}
}
