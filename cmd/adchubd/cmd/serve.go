package cmd

import (
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adchub/adchub/hub"
)

var confManager *viper.Viper

const defaultConfigName = "adchub"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the hub",
}

func init() {
	confManager = viper.New()
	confManager.AddConfigPath(".")
	if runtime.GOOS != "windows" {
		confManager.AddConfigPath("/etc/adchubd")
	}
	confManager.SetConfigName(defaultConfigName)
	confManager.SetDefault("hub.name", "ADC Hub")
	confManager.SetDefault("hub.desc", "a hub for the ADC protocol")
	confManager.SetDefault("hub.motd", "Welcome!")
	confManager.SetDefault("hub.private", false)
	confManager.SetDefault("chat.log.join", 10)
	confManager.SetDefault("session.write_queue_cap", 256)
	confManager.SetDefault("irc.enabled", true)
	confManager.SetDefault("metrics.enabled", true)

	flags := serveCmd.Flags()
	flags.String("host", "0.0.0.0", "host or IP to listen on")
	_ = confManager.BindPFlag("serve.host", flags.Lookup("host"))
	flags.Int("port", 1511, "port to listen on")
	_ = confManager.BindPFlag("serve.port", flags.Lookup("port"))
	flags.String("name", "ADC Hub", "name of the hub")
	_ = confManager.BindPFlag("hub.name", flags.Lookup("name"))
	flags.String("desc", "a hub for the ADC protocol", "description of the hub")
	_ = confManager.BindPFlag("hub.desc", flags.Lookup("desc"))
	flags.String("password", "", "hub password; empty disables password verification")
	_ = confManager.BindPFlag("hub.password", flags.Lookup("password"))
	flags.Int("metrics-port", 2112, "port to serve Prometheus metrics on")
	_ = confManager.BindPFlag("metrics.port", flags.Lookup("metrics-port"))

	serveCmd.RunE = runServe
	Root.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := confManager.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		log.Println("no config file found, using defaults and flags")
	} else {
		log.Println("loaded config:", confManager.ConfigFileUsed())
	}

	var cmap map[string]interface{}
	if err := confManager.Unmarshal(&cmap); err != nil {
		return err
	}

	h := hub.NewHub(hub.WithRegisterer(prometheus.DefaultRegisterer))
	h.MergeConfig(hub.Map(cmap))

	if confManager.GetBool("metrics.enabled") {
		addr := ":" + strconv.Itoa(confManager.GetInt("metrics.port"))
		log.Println("serving metrics on", addr)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Println("cannot serve metrics:", err)
			}
		}()
	}

	host := confManager.GetString("serve.host") + ":" + strconv.Itoa(confManager.GetInt("serve.port"))
	ln, err := net.Listen("tcp", host)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Println("listening on", host)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		<-ch
		log.Println("stopping server")
		h.Close()
		_ = ln.Close()
	}()

	return hub.Serve(ln, h)
}
