// Copyright (C) 2021 TraceKit, Inc. All rights reserved.

package config

// GetDisabled is a wrapper to the method of the global config
var GetDisabled = GlobalConfig.GetDisabled

// GetReporterType is a wrapper to the method of the global config
var GetReporterType = GlobalConfig.GetReporterType

// GetEventsFile is a wrapper to the method of the global config
var GetEventsFile = GlobalConfig.GetEventsFile

// DebugLevel is a wrapper to the method of the global config
var DebugLevel = GlobalConfig.GetDebugLevel

// GetURLFiltering is a wrapper to the method of the global config
var GetURLFiltering = GlobalConfig.GetURLFiltering

// Load reads the customized configurations
var Load = GlobalConfig.Load
