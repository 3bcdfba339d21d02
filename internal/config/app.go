package config

type AppConfig struct {
	Server ServerConfig
	Duel   DuelConfig
	Log    LogConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	duelCfg, err := LoadDuel()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server: serverCfg,
		Duel:   duelCfg,
		Log:    logCfg,
	}, nil
}
