package cmd

// 借助cobra定义命令行界面：search/toc/content/info/find按书源规则
// 解析对应页面并以JSON输出，random随机选取一本小说的第一章，
// version打印版本信息

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dszqbsm/booksource/booksource"
	"github.com/dszqbsm/booksource/novel"
	"github.com/dszqbsm/booksource/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var searchCmd = &cobra.Command{
	Use:   "search <url> <key>",
	Short: "search books, {{key}} in url is replaced by the search key.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withParser(func(env *env) interface{} {
			return env.parser.Search(args[0], args[1])
		})
	},
}

var tocCmd = &cobra.Command{
	Use:   "toc <url>",
	Short: "list chapters of a book page.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withParser(func(env *env) interface{} {
			return env.parser.Toc(args[0])
		})
	},
}

var contentCmd = &cobra.Command{
	Use:   "content <url>",
	Short: "assemble chapter content, following pagination.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withParser(func(env *env) interface{} {
			return env.parser.Content(args[0])
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "extract book info fields.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withParser(func(env *env) interface{} {
			return env.parser.BookInfo(args[0])
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find [url]",
	Short: "list categories, defaults to the configured find page.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withParser(func(env *env) interface{} {
			u := env.cfg.Site.FindURL
			if len(args) > 0 {
				u = args[0]
			}
			return env.parser.Find(u)
		})
	},
}

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "pick a random novel and print its first chapter.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withParser(func(env *env) interface{} {
			s := novel.New(env.parser, env.cfg.Site.FindURL, env.logger)
			return s.RandomChapter()
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version.Printer()
	},
}

func Execute() {
	var rootCmd = &cobra.Command{Use: "booksource"}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yml", "config file path")
	rootCmd.AddCommand(searchCmd, tocCmd, contentCmd, infoCmd, findCmd, randomCmd, versionCmd)
	rootCmd.Execute()
}

type env struct {
	cfg    *Config
	parser *booksource.Parser
	logger *zap.Logger
}

// 加载配置并组装解析器，将fn返回的结果以JSON打印到标准输出。
// 诊断日志走标准错误输出，不与结果混在一起
func withParser(fn func(env *env) interface{}) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	parser, logger, err := setup(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	result := fn(&env{cfg: cfg, parser: parser, logger: logger})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
