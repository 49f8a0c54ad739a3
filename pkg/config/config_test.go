package config

import (
	"os"
	"testing"
)

func TestConfigInit(t *testing.T) {
	defer os.Remove(configPath)

	// init first for generate streamspy.yaml
	err := ConfigInit()
	if err != nil {
		t.Errorf("test config init failed:%v", err)
	}
	// init again for read streamspy.yaml
	err = ConfigInit()
	if err != nil {
		t.Errorf("test config init failed:%v", err)
	}
	if ConfigGlobal.Log.Level != defaultConfig.Log.Level {
		t.Errorf("get yaml config failed,%s,%s", ConfigGlobal.Log.Level, defaultConfig.Log.Level)
	}
	if ConfigGlobal.Report.Outdir != defaultConfig.Report.Outdir {
		t.Errorf("get yaml config failed,%s,%s", ConfigGlobal.Report.Outdir, defaultConfig.Report.Outdir)
	}
}
